package pg

import (
	"context"

	"punchclock.org/internal/policy"
)

func (s *Store) Upsert(ctx context.Context, b policy.Binding) (policy.Binding, error) {
	if b.GroupID == "" || b.RoleID == "" {
		return policy.Binding{}, policy.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		insert into role_bindings(group_id, role_id, is_mod, can_punch, updated_at)
		values ($1,$2,$3,$4,now())
		on conflict (group_id, role_id) do update
		set is_mod = excluded.is_mod, can_punch = excluded.can_punch, updated_at = now()
		returning updated_at
	`, b.GroupID, b.RoleID, b.IsMod, b.CanPunch).Scan(&b.UpdatedAt)
	if err != nil {
		return policy.Binding{}, err
	}
	return b, nil
}

func (s *Store) Remove(ctx context.Context, groupID, roleID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from role_bindings where group_id=$1 and role_id=$2`,
		groupID, roleID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return policy.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, groupID string) ([]policy.Binding, error) {
	rows, err := s.db.QueryContext(ctx, `
		select group_id, role_id, is_mod, can_punch, updated_at
		from role_bindings
		where group_id=$1
		order by role_id asc
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []policy.Binding
	for rows.Next() {
		var b policy.Binding
		if err := rows.Scan(&b.GroupID, &b.RoleID, &b.IsMod, &b.CanPunch, &b.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
