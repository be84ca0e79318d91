package sqlite

const (
	createEventsTableQuery = `
	create table if not exists events (
	    seq integer primary key autoincrement,
	    id text not null unique,
	    transaction_id text,
	    contact_id text,
	    type text not null,
	    actor_role text not null,
	    actor_id text not null,
	    payload text not null default '{}',
	    created_at datetime not null
	)
`
	createEventsTransactionIdxQuery = `
	create index if not exists events_transaction_idx on events (transaction_id, created_at, seq)
`
	createEventsContactIdxQuery = `
	create index if not exists events_contact_idx on events (contact_id, created_at, seq)
`
	createEventsNoUpdateTriggerQuery = `
	create trigger if not exists events_no_update before update on events
	begin
	    select raise(abort, 'events are append-only');
	end
`
	createEventsNoDeleteTriggerQuery = `
	create trigger if not exists events_no_delete before delete on events
	begin
	    select raise(abort, 'events are append-only');
	end
`
	createTasksTableQuery = `
	create table if not exists tasks (
	    id text primary key,
	    transaction_id text not null,
	    title text not null,
	    status text not null,
	    priority text not null,
	    due_date datetime,
	    assignee text,
	    created_at datetime not null
	)
`
	createTasksIdxQuery = `
	create index if not exists tasks_transaction_idx on tasks (transaction_id, created_at)
`
)

const (
	createStatusTableQuery = `
	create table if not exists %s (
	    table_name text primary key,
	    last_fetch_id integer not null default 0,
	    last_fetch_timestamp datetime
	)
`
	registerStatusRowQuery = `
	insert or ignore into %s (table_name) values (?)
`
	createChangelogTableQuery = `
	create table if not exists %s (
	    id integer primary key autoincrement,
	    method text not null check (method in ('INSERT', 'UPDATE')),
	    created_at datetime default current_timestamp,
	    data text not null default '{}'
	)
`
	createDlqTableQuery = `
	create table if not exists %s (
	    id integer primary key autoincrement,
	    origin_table text not null,
	    payload text,
	    origin_error text
	)
`
	// trigger name, operation, watched table, changelog table, operation, row image
	createChangelogTriggerQuery = `
	create trigger if not exists %s after %s on %s
	begin
	    insert into %s (method, data) values ('%s', %s);
	end
`
	dropTriggerQuery = `drop trigger if exists %s`
	dropTableQuery   = `drop table if exists %s`
)

// rowImages renders NEW as a JSON object, column by column, per watched table.
var rowImages = map[string]string{
	"events": `json_object(
	        'seq', NEW.seq, 'id', NEW.id, 'transaction_id', NEW.transaction_id,
	        'contact_id', NEW.contact_id, 'type', NEW.type, 'actor_role', NEW.actor_role,
	        'actor_id', NEW.actor_id, 'payload', json(NEW.payload), 'created_at', NEW.created_at)`,
	"tasks": `json_object(
	        'id', NEW.id, 'transaction_id', NEW.transaction_id, 'title', NEW.title,
	        'status', NEW.status, 'priority', NEW.priority, 'due_date', NEW.due_date,
	        'assignee', NEW.assignee, 'created_at', NEW.created_at)`,
}
