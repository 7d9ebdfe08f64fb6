/*
Package client is the agent- and CLI-side view of the tracker API.

It mirrors the server's JSON/HTTP surface: the three tracker verbs for
node agents, and the admin and operator endpoints for the burrow CLI.
*/
package client
