package redis

// Redis key naming conventions for walkthrough data.
// All keys are prefixed with "walkthrough:" to avoid collisions.

const keyPrefix = "walkthrough:"

// sessionKey is the hash holding the singleton session record.
const sessionKey = keyPrefix + "session"

// journalKey is the capped stream of journal entries.
const journalKey = keyPrefix + "journal"
