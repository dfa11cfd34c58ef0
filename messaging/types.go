// Package messaging implements the messaging substrate of spec.md §4.2-§4.5:
// the Server accept loop, per-socket Receivers, the single outbound Sender,
// and the pub/sub Controller that fans decoded messages out to subscribed
// in-node Applications.
package messaging

import "github.com/gossipring/cassandra/internal/wire"

// Message is a decoded, in-process unit of work: a wire.Frame with a mutable
// retry counter attached, per the Message entity in spec.md §3.
type Message struct {
	Code         wire.Code
	SourceAddr   string
	Data         []byte
	RetryCounter int
}

// itemKind tags the inbound queue item fed to the Controller's main loop.
type itemKind int

const (
	itemReceived itemKind = iota
	itemNewConnection
	itemConnectionLost
	itemNotification
)

// inboundItem is the Controller's internal envelope over the four inbound
// item shapes from spec.md §4.5's dispatch table.
type inboundItem struct {
	kind       itemKind
	identifier string  // set for itemReceived, itemNewConnection, itemConnectionLost
	message    Message // set for itemReceived, itemNotification
}

// senderItemKind tags work enqueued to the Sender.
type senderItemKind int

const (
	senderItemSend senderItemKind = iota
	senderItemNewConnection
)

// senderItem is one unit of Sender work queue, per spec.md §4.4.
type senderItem struct {
	kind       senderItemKind
	identifier string
	message    Message
}
