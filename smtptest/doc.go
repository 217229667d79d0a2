package smtptest

// smtptest runs a throwaway SMTP submission server inside the test process.
// The server speaks implicit TLS (like a port 465 relay), insists on AUTH
// with a single username/password pair, and keeps every message it receives
// in memory so tests can inspect what was actually transmitted.
