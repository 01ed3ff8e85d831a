// Package ddstypes holds the value types shared by every ddspipe component:
// topics, participant and entity identifiers, QoS snapshots and the
// zero-copy sample envelope that flows through bridges.
package ddstypes

import "fmt"

// TopicKind distinguishes the three kinds of communication a TopicId can
// represent: unidirectional data, and the two halves of an RPC exchange.
type TopicKind int

const (
	// KindData identifies a unidirectional, many-to-many data topic.
	KindData TopicKind = iota
	// KindRpcRequest identifies the request half of an RPC service topic.
	KindRpcRequest
	// KindRpcReply identifies the reply half of an RPC service topic.
	KindRpcReply
)

func (k TopicKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindRpcRequest:
		return "rpc-request"
	case KindRpcReply:
		return "rpc-reply"
	default:
		return "unknown"
	}
}

// TopicId identifies a topic by name, data type and kind. Equality is
// structural: two TopicIds with the same fields are the same topic.
type TopicId struct {
	Name string
	Type string
	Kind TopicKind
}

// Equal reports whether t and other identify the same topic.
func (t TopicId) Equal(other TopicId) bool {
	return t.Name == other.Name && t.Type == other.Type && t.Kind == other.Kind
}

func (t TopicId) String() string {
	return fmt.Sprintf("%s<%s>[%s]", t.Name, t.Type, t.Kind)
}

// RpcTopic pairs the request and reply TopicIds that make up one RPC
// service. The topic names are the service name with the suffixes
// "_Request" and "_Reply".
type RpcTopic struct {
	ServiceName string
	RequestType string
	ReplyType   string
}

// RequestTopic returns the TopicId used for client-to-server requests.
func (r RpcTopic) RequestTopic() TopicId {
	return TopicId{Name: r.ServiceName + "_Request", Type: r.RequestType, Kind: KindRpcRequest}
}

// ReplyTopic returns the TopicId used for server-to-client replies.
func (r RpcTopic) ReplyTopic() TopicId {
	return TopicId{Name: r.ServiceName + "_Reply", Type: r.ReplyType, Kind: KindRpcReply}
}
