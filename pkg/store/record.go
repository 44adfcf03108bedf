package store

import "github.com/golang/protobuf/proto"

// SessionRecord is the persisted cloud session.
type SessionRecord struct {
	Sid       string `protobuf:"bytes,1,opt,name=sid,proto3" json:"sid,omitempty"`
	Dtg       string `protobuf:"bytes,2,opt,name=dtg,proto3" json:"dtg,omitempty"`
	UpdatedAt int64  `protobuf:"varint,3,opt,name=updated_at,json=updatedAt,proto3" json:"updated_at,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *SessionRecord) ProtoMessage() {}

// Reset implements proto.Message.
func (m *SessionRecord) Reset() { *m = SessionRecord{} }

// String implements proto.Message.
func (m *SessionRecord) String() string { return proto.CompactTextString(m) }
