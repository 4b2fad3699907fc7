package sqlinline

const QSelectAccountByID = `--sql faf55041-d5ee-4668-bc9c-a3ff30da4068
select id, chat_id, locale, tokens, created_at, updated_at
from accounts
where id = $1;
`

// QEnsureAccount registers a messenger chat. New accounts start with the
// signup grant in $3; existing balances are never touched.
const QEnsureAccount = `--sql f08d9659-2f0e-4a32-8e7f-9535c8a8a69c
insert into accounts (chat_id, locale, tokens)
values ($1, $2, $3)
on conflict (chat_id) do update set
    locale = excluded.locale,
    updated_at = now()
returning id, chat_id, locale, tokens, created_at, updated_at;
`
