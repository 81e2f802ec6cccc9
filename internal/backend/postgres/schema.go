package postgres

// schemaLockID serializes concurrent schema setup across processes.
const schemaLockID = 7_341_882_113

// schema creates the tables and the change trigger. NOTIFY payloads are
// capped at 8000 bytes, so larger rows are announced by id and owner only
// and marked truncated.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email         TEXT NOT NULL UNIQUE,
	full_name     TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS todos (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL CHECK (length(btrim(title)) > 0),
	description TEXT NOT NULL DEFAULT '',
	completed   BOOLEAN NOT NULL DEFAULT false,
	attachment  JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_todos_user_created ON todos(user_id, created_at DESC);

CREATE OR REPLACE FUNCTION notify_todo_change() RETURNS trigger AS $$
DECLARE
	payload TEXT;
BEGIN
	IF TG_OP = 'DELETE' THEN
		payload := json_build_object(
			'type', TG_OP,
			'old_record', json_build_object('id', OLD.id, 'user_id', OLD.user_id))::text;
		PERFORM pg_notify('todos:' || OLD.user_id, payload);
		RETURN OLD;
	END IF;

	payload := json_build_object(
		'type', TG_OP,
		'record', row_to_json(NEW),
		'old_record', json_build_object('id', NEW.id, 'user_id', NEW.user_id))::text;
	IF octet_length(payload) > 7900 THEN
		payload := json_build_object(
			'type', TG_OP,
			'record', json_build_object('id', NEW.id, 'user_id', NEW.user_id),
			'truncated', true)::text;
	END IF;
	PERFORM pg_notify('todos:' || NEW.user_id, payload);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS todos_notify ON todos;
CREATE TRIGGER todos_notify
	AFTER INSERT OR UPDATE OR DELETE ON todos
	FOR EACH ROW EXECUTE FUNCTION notify_todo_change();
`

// channelFor returns the NOTIFY channel carrying ownerID's changes.
func channelFor(ownerID string) string {
	return "todos:" + ownerID
}
