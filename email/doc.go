package email

// email sends messages through an SMTP submission server over implicit TLS,
// including connecting to the server, authenticating, and building the MIME
// message. A client holds one open session at a time. Failing to connect
// leaves the client disabled rather than broken: sends are refused with a
// warning until Connect succeeds.
