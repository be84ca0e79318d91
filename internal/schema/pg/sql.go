package pg

const (
	CreateEventsTableQuery = `
	create table if not exists events (
	    seq bigserial primary key,
	    id text not null unique,
	    transaction_id text,
	    contact_id text,
	    type text not null,
	    actor_role text not null,
	    actor_id text not null,
	    payload jsonb not null default '{}',
	    created_at timestamptz not null
	)
`
	CreateEventsIndexesQuery = `
	create index if not exists events_transaction_idx on events (transaction_id, created_at, seq);
	create index if not exists events_contact_idx on events (contact_id, created_at, seq);
`
	CreateEventsImmutableProcedureQuery = `
	create or replace function events_append_only() returns trigger as $events_append_only$
    begin
        raise exception 'events are append-only';
    end;
    $events_append_only$ LANGUAGE plpgsql
`
	CreateEventsImmutableTriggerQuery = `
	create or replace trigger events_append_only_trigger
    before update or delete on events
    for each row execute procedure events_append_only();
`
	CreateTasksTableQuery = `
	create table if not exists tasks (
	    id text primary key,
	    transaction_id text not null,
	    title text not null,
	    status text not null,
	    priority text not null,
	    due_date timestamptz,
	    assignee text,
	    created_at timestamptz not null
	)
`
	CreateTasksIndexQuery = `
	create index if not exists tasks_transaction_idx on tasks (transaction_id, created_at)
`
)

const (
	CreateStatusTableQuery = `
	create table if not exists %s (
	    table_name text primary key,
	    last_fetch_id bigint not null default 0,
	    last_fetch_timestamp timestamptz
	)
`
	RegisterStatusRowQuery = `
	insert into %s (table_name) values ($1) on conflict (table_name) do nothing
`
	CreateChangelogTableQuery = `
	create table if not exists %s (
	    id bigserial primary key,
	    method text not null check (method in ('INSERT', 'UPDATE')),
	    created_at timestamptz default now(),
	    data jsonb not null default '{}'
	)
`
	CreateCreatedAtIdxForChangelogTableQuery = `
	create index if not exists
		%s on %s (
			created_at
    );
`
	CreateDlqTableQuery = `
	create table if not exists %s (
	    id bigserial primary key,
	    origin_table text not null,
	    payload jsonb,
	    origin_error text
	)
`
	DropTriggerQuery = `
	drop trigger if exists %s on %s
`
	DropProcedureQuery = `
	drop function if exists %s()
`
	DropTableQuery = `
	drop table if exists %s
`
)

const (
	CreateChangelogProcedureQuery = `
	create or replace function %s() returns trigger as $%s_changelog_audit$
    begin
        insert into %s (method, created_at, data) values (TG_OP, now(), row_to_json(NEW));
        return NEW;
    end;
    $%s_changelog_audit$ LANGUAGE plpgsql
`

	CreateTriggerForWatchedTableQuery = `
	create or replace trigger %s
    after insert or update on %s
    for each row execute procedure %s();
`
)
