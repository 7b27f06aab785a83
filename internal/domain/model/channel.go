package model

// Channel identifies a notification kind. Each channel has its own queue
// topic; ordering and backpressure are scoped per channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Topic returns the queue topic name for this channel.
func (c Channel) Topic() string {
	return string(c) + "-events"
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}
