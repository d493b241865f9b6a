package localauth

func runMigrations(exec Executor) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			phone TEXT,
			dob INTEGER,
			focus TEXT,
			avatar_url TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			core_at INTEGER,
			respondent_at INTEGER,
			creator_at INTEGER,
			created_at INTEGER,
			updated_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS user_sessions (
			id TEXT PRIMARY KEY,
			refresh TEXT UNIQUE,
			user_id TEXT NOT NULL,
			expires_at INTEGER,
			created_at INTEGER,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS user_identities (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			email TEXT,
			created_at INTEGER,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			UNIQUE(provider, provider_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_oauth_states (
			state TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			expires_at INTEGER,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS user_codes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			purpose TEXT NOT NULL,
			target TEXT NOT NULL,
			hash TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			expires_at INTEGER,
			created_at INTEGER,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			UNIQUE(user_id, purpose)
		)`,
		`CREATE TABLE IF NOT EXISTS user_avatars (
			user_id TEXT PRIMARY KEY,
			content_type TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at INTEGER,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
	}

	for _, q := range queries {
		if err := exec.Exec(q); err != nil {
			return err
		}
	}
	return nil
}
