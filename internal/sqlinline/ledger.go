package sqlinline

// QLedgerDeduct debits and journals in one statement. The tokens >= $2 guard
// makes the debit a no-op (zero rows) instead of an overdraft.
const QLedgerDeduct = `--sql 39f9fe30-115b-4a9b-bc9f-e347faf6e255
with debited as (
    update accounts
    set tokens = tokens - $2, updated_at = now()
    where id = $1 and tokens >= $2
    returning id, tokens
),
journal as (
    insert into ledger_entries (account_id, entry_type, amount, description, task_id)
    select id, 'deduct', -$2::bigint, $3::text, $4::bigint from debited
)
select tokens from debited;
`

// QLedgerAdd serves both refunds and credits; $3 is the entry type.
const QLedgerAdd = `--sql 7d4e168d-8d1b-4168-a337-132f2540360b
with added as (
    update accounts
    set tokens = tokens + $2, updated_at = now()
    where id = $1
    returning id, tokens
),
journal as (
    insert into ledger_entries (account_id, entry_type, amount, description, task_id)
    select id, $3::text, $2::bigint, $4::text, $5::bigint from added
)
select tokens from added;
`

const QSelectAccountBalance = `--sql 5f8866cd-11e3-45c1-8740-642052fd1ca1
select tokens
from accounts
where id = $1;
`

const QListLedgerEntries = `--sql 4f6e0927-d670-483e-a872-9f37875ebcdd
select id, account_id, entry_type, amount, description, task_id, created_at
from ledger_entries
where account_id = $1
order by created_at desc, id desc
limit $2;
`
