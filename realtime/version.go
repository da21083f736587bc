package realtime

// Version is the client library version reported in the user-agent.
const Version = "0.3.0"

// ProtocolVersion is the wire protocol revision sent on connect.
const ProtocolVersion = "1"
