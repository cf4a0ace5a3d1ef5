package pgstore

const (
	qInsertMessage = `
		INSERT INTO messages (id, room_id, sender, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	qInsertGroupMessage = `
		INSERT INTO group_messages (id, group_id, sender, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	qInsertNotification = `
		INSERT INTO notifications (id, recipient, message_id, room_id, type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	qGroupExists = `SELECT EXISTS(SELECT 1 FROM chat_groups WHERE id=$1)`

	qGroupMembers = `SELECT user_id FROM group_members WHERE group_id=$1 ORDER BY user_id`

	// keyset pagination over (created_at, id) ascending
	qHistory = `
		SELECT id, room_id, sender, text, is_read, created_at
		FROM messages
		WHERE room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at > $2
		    OR (created_at = $2 AND id > $3)
		  )
		ORDER BY created_at ASC, id ASC
		LIMIT $4`

	qGroupHistory = `
		SELECT id, group_id, sender, text, is_read, created_at
		FROM group_messages
		WHERE group_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at > $2
		    OR (created_at = $2 AND id > $3)
		  )
		ORDER BY created_at ASC, id ASC
		LIMIT $4`

	qMarkRoomRead = `UPDATE messages SET is_read = TRUE WHERE room_id=$1 AND is_read = FALSE`

	qNotifications = `
		SELECT id, recipient, message_id, room_id, is_read, type, created_at
		FROM notifications
		WHERE recipient = $1 AND type = $2
		ORDER BY created_at DESC, id DESC
		OFFSET $3 LIMIT $4`

	qMarkNotificationsRead = `
		UPDATE notifications SET is_read = TRUE
		WHERE recipient=$1 AND type=$2 AND room_id=$3 AND is_read = FALSE`

	qNotificationByID = `
		SELECT id, recipient, message_id, room_id, is_read, type, created_at
		FROM notifications WHERE id=$1`

	qMarkNotificationRead = `UPDATE notifications SET is_read = TRUE WHERE id=$1`

	qUnreadCount = `SELECT COUNT(*) FROM notifications WHERE recipient=$1 AND is_read = FALSE`

	qInsertGroup = `
		INSERT INTO chat_groups (id, name, description, created_at)
		VALUES ($1, $2, $3, $4)`

	qInsertGroupMember = `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	qListGroups = `
		SELECT g.id, g.name, g.description, g.created_at, m.user_id
		FROM chat_groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		ORDER BY g.created_at ASC, g.id ASC, m.user_id ASC`
)
