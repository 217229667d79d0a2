package logging

// logging writes human-readable log records to a file in the
// "[YYYY-MM-DD HH:MM:SS] - LEVEL - message" layout, optionally echoing each
// message to the console. Every Logger is constructed and passed around
// explicitly; nothing here touches the global zerolog logger.
