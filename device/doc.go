package device

// device answers one-shot questions about the host: its MAC and IP
// addresses, hostname, local date and time, memory, CPU load, and CPU
// temperature. Nothing is cached; every call reads the system afresh.
// Temperature support is a best-effort plugin since it depends on
// board-specific tools.
