// Package streaming implements the subset of the Engine.IO and Socket.IO wire
// protocols the bridge speaks: text frames over a websocket, default namespace,
// no binary attachments.
//
// A Socket.IO event travels as an Engine.IO message packet whose payload is a
// Socket.IO packet:
//
//	42["Bridge",{"V1 Throttle":"0.5"}]
//	^^ ^
//	|| +-- event name followed by arguments, as a JSON array
//	|+---- Socket.IO EVENT
//	+----- Engine.IO MESSAGE
package streaming
