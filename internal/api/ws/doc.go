/*
Package ws carries terminal sessions over websockets.

Conn adapts a gorilla websocket to session.Transport. Binary frames in
both directions are raw terminal bytes; text frames carry JSON control
messages:

	client → server  {"type":"input","data":"ls\n"}
	client → server  {"type":"resize","cols":120,"rows":40}
	server → client  {"type":"logout","code":0}
	server → client  {"type":"error","message":"connection error"}

The close frame carries the reason the session ended. Output is queued
for a single writer goroutine; when the client stops reading, Send blocks
and finally fails with ErrSlowConsumer, which stalls and then ends the
session instead of buffering without bound.
*/
package ws
