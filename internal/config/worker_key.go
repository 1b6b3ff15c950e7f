package config

// WorkerKeyStruct names the Redis lists shared between the relay's audit
// publisher and the persistence worker.
type WorkerKeyStruct struct {
	// PersistRelayEventsQueue carries every audit record in relay order so
	// that a participant row always lands before its responses.
	PersistRelayEventsQueue string
	// DeadLetterQueue receives records that failed MaxPersistAttempts times.
	DeadLetterQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistRelayEventsQueue: "persist_relay_events_queue",
	DeadLetterQueue:         "persist_relay_events_dead",
}

// MaxPersistAttempts bounds how often the worker requeues a failing record.
const MaxPersistAttempts = 5
