package sqlinline

const QSelectIntegrationToken = `--sql 0f6a2b8c-4d1e-4f3a-9b5c-7e8d9a0b1c2d
select token
from integration_tokens
where provider = $1::text
  and coalesce(disabled, false) = false
order by updated_at desc
limit 1;
`

const QUpsertIntegrationToken = `--sql 5a9c1e3f-7b2d-4e6a-8c0f-3d5b7a9c1e2f
insert into integration_tokens(provider, token, created_at, updated_at)
values ($1::text, $2::text, now(), now())
on conflict (provider) do update
set token = excluded.token,
    disabled = false,
    updated_at = now();
`
