// Package whatsapp connects to a WhatsApp web bridge over a websocket.
//
// The bridge speaks JSON frames:
//
//	{"type":"status","status":"connected"}         bridge -> gateway
//	{"type":"message","id":"...","sender":"...","content":"..."}
//	{"type":"send","to":"<jid>","text":"..."}       gateway -> bridge
//	{"type":"send_document","to":"<jid>","data":"<base64>","filename":"...","mimetype":"..."}
//
// Client.IsReady follows the last status frame, so a linked but
// reconnecting phone reports not ready.
package whatsapp
