package protocol

// RPC method names. Collaborators reach them through the HTTP API; the
// names also label spans and log lines.
const (
	// Rooms
	MethodCreateChatRoom       = "createChatRoom"
	MethodAddChatRoomMember    = "addChatRoomMember"
	MethodDeleteChatRoomMember = "deleteChatRoomMember"

	// Agents
	MethodCreateAgent    = "createAgent"
	MethodUpdateAgent    = "updateAgent"
	MethodGetAgentByID   = "getAgentById"
	MethodGetAgentsByIDs = "getAgentsByIds"
	MethodGetAgents      = "getAgents"

	// Workflows and documents
	MethodDeleteWorkflow = "deleteWorkflow"
	MethodDeleteDocument = "deleteDocument"

	// MCP servers
	MethodGetMcpServers   = "getMcpServers"
	MethodCreateMcpServer = "createMcpServer"
	MethodUpdateMcpServer = "updateMcpServer"
	MethodDeleteMcpServer = "deleteMcpServer"
)
