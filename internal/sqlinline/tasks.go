package sqlinline

const QInsertTask = `--sql 4112be83-cd82-485d-86a3-a53bc3cf7bfd
insert into generation_tasks (
    account_id, kind, provider, model, quality, size, prompt, source_refs, tokens_charged, status
)
values ($1, $2, $3, $4, $5, $6, $7, $8::text[], $9, 'pending')
returning id, status, retry_count, created_at, updated_at;
`

const QSelectTaskByID = `--sql acec080a-c916-4cc2-93b1-6a80590b3bc5
select id, account_id, kind, provider, model, quality, size, prompt, source_refs,
       tokens_charged, provider_units_used, status, retry_count, result_url, result_key,
       delivered_artifact_id, error_message, created_at, updated_at
from generation_tasks
where id = $1;
`

// QTransitionTask is the compare-and-set used for every status change. It
// only matches while the row is still in the expected source status.
const QTransitionTask = `--sql d42843df-14f9-4b33-98e5-223b5d541c36
update generation_tasks
set status                = $3,
    retry_count           = coalesce($4::int, retry_count),
    error_message         = coalesce($5::text, error_message),
    result_url            = coalesce($6::text, result_url),
    result_key            = coalesce($7::text, result_key),
    delivered_artifact_id = coalesce($8::text, delivered_artifact_id),
    provider_units_used   = coalesce($9::bigint, provider_units_used),
    updated_at            = now()
where id = $1 and status = $2
returning id, account_id, kind, provider, model, quality, size, prompt, source_refs,
          tokens_charged, provider_units_used, status, retry_count, result_url, result_key,
          delivered_artifact_id, error_message, created_at, updated_at;
`

const QSelectTaskStatus = `--sql 481c5071-fa03-4e82-8a06-25f4ce104987
select status
from generation_tasks
where id = $1;
`

const QListTasksByAccount = `--sql eaaa8efb-a8fb-4c62-bbc6-2f3b4bbf55ef
select id, account_id, kind, provider, model, quality, size, prompt, source_refs,
       tokens_charged, provider_units_used, status, retry_count, result_url, result_key,
       delivered_artifact_id, error_message, created_at, updated_at
from generation_tasks
where account_id = $1
order by created_at desc, id desc
limit $2;
`

const QCountTasksByStatus = `--sql 82fcc345-0b7f-4e44-b692-c10ed92cf582
select status, count(*)
from generation_tasks
group by status;
`
