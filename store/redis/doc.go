// Package redis implements store.Store on Redis. The session record is a
// hash whose key expires together with the session, so Redis drops an
// abandoned walkthrough on its own. Journal entries go to a capped stream.
//
// The caller owns the Redis client lifecycle:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
