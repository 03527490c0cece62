package sqlinline

const QListNiches = `--sql 4c8f2f34-9a7e-4f4b-8a8e-2c1d5b6e7f90
select id, name, coalesce(description, '')
from niches
order by name;
`

const QListKeywords = `--sql b1d3a6c2-5e4f-4a7b-9c8d-0e1f2a3b4c5d
select k.niche_id, n.name, k.keyword, k.weight
from keywords k
join niches n on n.id = k.niche_id;
`

const QInsertLearnedKeyword = `--sql 83e7c9d1-2b4a-4c6e-8f0a-1d3b5c7e9f02
insert into keywords(niche_id, keyword, weight, created_at)
values ($1::int, $2::text, $3::float8, now())
on conflict (niche_id, keyword) do nothing;
`
