package database

func (db *PgTeamChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgTeamChatRepository) GetAccountById(accountId string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT external_id, username, email FROM accounts "+
			"WHERE external_id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
	)

	return user, err
}

func (db *PgTeamChatRepository) GetChannelById(channelId string) (Channel, error) {
	row := db.conn.QueryRow(
		"SELECT c.external_id, c.name, o.external_id, c.is_private FROM channels c "+
			"JOIN organizations o ON o.id = c.organization_id "+
			"WHERE c.external_id = $1 LIMIT 1",
		channelId,
	)

	var channel Channel
	err := row.Scan(
		&channel.Id,
		&channel.Name,
		&channel.OrganizationId,
		&channel.IsPrivate,
	)

	return channel, err
}

func (db *PgTeamChatRepository) IsChannelMember(channelId, accountId string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS ("+
			"SELECT 1 FROM channel_members cm "+
			"JOIN channels c ON c.id = cm.channel_id "+
			"JOIN accounts a ON a.id = cm.account_id "+
			"WHERE c.external_id = $1 AND a.external_id = $2)",
		channelId,
		accountId,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, err
}

func (db *PgTeamChatRepository) GetSessionById(sessionId string) (Session, error) {
	row := db.conn.QueryRow(
		"SELECT s.external_id, o.external_id FROM dm_sessions s "+
			"JOIN organizations o ON o.id = s.organization_id "+
			"WHERE s.external_id = $1 LIMIT 1",
		sessionId,
	)

	var session Session
	err := row.Scan(
		&session.Id,
		&session.OrganizationId,
	)

	return session, err
}

func (db *PgTeamChatRepository) IsSessionParticipant(sessionId, accountId string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS ("+
			"SELECT 1 FROM dm_session_participants sp "+
			"JOIN dm_sessions s ON s.id = sp.session_id "+
			"JOIN accounts a ON a.id = sp.account_id "+
			"WHERE s.external_id = $1 AND a.external_id = $2)",
		sessionId,
		accountId,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, err
}
