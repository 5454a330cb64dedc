package database

// TeamChatRepository is the membership lookup surface the realtime core
// needs from the system of record. All queries are read-only; the CRUD
// application owns the schema and all writes.
type TeamChatRepository interface {
	Ping() error
	GetAccountById(accountId string) (User, error)
	GetChannelById(channelId string) (Channel, error)
	IsChannelMember(channelId, accountId string) (bool, error)
	GetSessionById(sessionId string) (Session, error)
	IsSessionParticipant(sessionId, accountId string) (bool, error)
}
