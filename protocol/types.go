package protocol

type MessageType uint8

const (
	MessageTypeHello  MessageType = 1
	MessageTypeProbe  MessageType = 2
	MessageTypeData   MessageType = 3
	MessageTypeThreat MessageType = 4
	MessageTypeClose  MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeHello:
		return "HELLO"
	case MessageTypeProbe:
		return "PROBE"
	case MessageTypeData:
		return "DATA"
	case MessageTypeThreat:
		return "THREAT"
	case MessageTypeClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}
