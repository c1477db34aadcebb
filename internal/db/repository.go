package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chambridge/capacity-stats/internal/stats"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListDistricts returns every district keyed by id, with its declared members.
func (r *Repository) ListDistricts(ctx context.Context) (map[string]stats.DistrictEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			d.id::text,
			d.name,
			d.gear_profile,
			d.max_capacity,
			d.available_capacity,
			d.available_uids,
			dn.server_identity,
			dn.active
		FROM districts d
		LEFT JOIN district_nodes dn ON dn.district_id = d.id
		ORDER BY d.id, dn.server_identity`)
	if err != nil {
		return nil, fmt.Errorf("failed to query districts: %w", err)
	}
	defer rows.Close()

	districts := make(map[string]stats.DistrictEntry)
	for rows.Next() {
		var d stats.DistrictEntry
		var member *string
		var active *bool
		if err := rows.Scan(
			&d.ID,
			&d.Name,
			&d.Profile,
			&d.Capacity,
			&d.AvailableCapacity,
			&d.AvailableUIDs,
			&member,
			&active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan district row: %w", err)
		}
		existing, ok := districts[d.ID]
		if !ok {
			d.Members = stats.Membership{}
			existing = d
			districts[d.ID] = existing
		}
		if member != nil {
			existing.Members[*member] = active != nil && *active
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return districts, nil
}

// ListHosts returns every node that hosts at least one gear, sorted.
func (r *Repository) ListHosts(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT server_identity FROM gears WHERE server_identity <> '' ORDER BY server_identity`)
	if err != nil {
		return nil, fmt.Errorf("failed to query gear hosts: %w", err)
	}
	hosts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan gear hosts: %w", err)
	}
	return hosts, nil
}

// StreamUsers pages through users ordered by login and hands each page, fully
// assembled, to fn. Pages hold at most batchSize users. An error from fn stops
// the walk and is returned as is.
func (r *Repository) StreamUsers(ctx context.Context, batchSize int, fn func([]stats.UserRecord) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("invalid batch size %d", batchSize)
	}

	after := ""
	for {
		logins, err := r.userPage(ctx, after, batchSize)
		if err != nil {
			return err
		}
		if len(logins) == 0 {
			return nil
		}

		rows, err := r.db.Query(ctx, `
			SELECT
				u.login,
				a.id::text,
				a.name,
				a.default_gear_size,
				gi.id::text,
				g.id::text,
				g.gear_size,
				g.server_identity,
				gc.descriptor
			FROM users u
			LEFT JOIN applications a ON a.user_id = u.id
			LEFT JOIN group_instances gi ON gi.application_id = a.id
			LEFT JOIN gears g ON g.group_instance_id = gi.id
			LEFT JOIN gear_components gc ON gc.gear_id = g.id
			WHERE u.login = ANY($1)
			ORDER BY u.login, a.id, gi.id, g.id, gc.position`, logins)
		if err != nil {
			return fmt.Errorf("failed to query user records: %w", err)
		}
		records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[recordRow])
		if err != nil {
			return fmt.Errorf("failed to scan user records: %w", err)
		}

		if err := fn(assembleUsers(logins, records)); err != nil {
			return err
		}
		if len(logins) < batchSize {
			return nil
		}
		after = logins[len(logins)-1]
	}
}

func (r *Repository) userPage(ctx context.Context, after string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT login FROM users WHERE login > $1 ORDER BY login LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	logins, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return logins, nil
}

// assembleUsers rebuilds record trees from join rows. rows must be ordered so
// that children follow their parent; every login in logins yields a user,
// including users with no applications.
func assembleUsers(logins []string, rows []recordRow) []stats.UserRecord {
	users := make([]stats.UserRecord, len(logins))
	index := make(map[string]int, len(logins))
	for i, login := range logins {
		users[i] = stats.UserRecord{Login: login}
		index[login] = i
	}

	for _, row := range rows {
		i, ok := index[row.Login]
		if !ok || row.AppID == nil {
			continue
		}
		u := &users[i]

		if n := len(u.Applications); n == 0 || u.Applications[n-1].ID != *row.AppID {
			u.Applications = append(u.Applications, stats.ApplicationRecord{
				ID:      *row.AppID,
				Name:    deref(row.AppName),
				Profile: deref(row.AppProfile),
			})
		}
		app := &u.Applications[len(u.Applications)-1]
		if row.GroupID == nil {
			continue
		}

		if n := len(app.Groups); n == 0 || app.Groups[n-1].ID != *row.GroupID {
			app.Groups = append(app.Groups, stats.GroupRecord{ID: *row.GroupID})
		}
		group := &app.Groups[len(app.Groups)-1]
		if row.GearID == nil {
			continue
		}

		if n := len(group.Gears); n == 0 || group.Gears[n-1].ID != *row.GearID {
			group.Gears = append(group.Gears, stats.GearRecord{
				ID:      *row.GearID,
				Profile: deref(row.GearProfile),
				NodeID:  deref(row.ServerIdentity),
			})
		}
		gear := &group.Gears[len(group.Gears)-1]
		if row.Descriptor != nil {
			gear.Components = append(gear.Components, *row.Descriptor)
		}
	}
	return users
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// UpsertDistrict writes a district and replaces its member list.
func (r *Repository) UpsertDistrict(ctx context.Context, d stats.DistrictEntry) error {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return fmt.Errorf("invalid district id %q: %w", d.ID, err)
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO districts (id, name, gear_profile, max_capacity, available_capacity, available_uids)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE
			 SET name = EXCLUDED.name,
			     gear_profile = EXCLUDED.gear_profile,
			     max_capacity = EXCLUDED.max_capacity,
			     available_capacity = EXCLUDED.available_capacity,
			     available_uids = EXCLUDED.available_uids`,
			id, d.Name, d.Profile, d.Capacity, d.AvailableCapacity, d.AvailableUIDs)
		if err != nil {
			return fmt.Errorf("failed to upsert district: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM district_nodes WHERE district_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear district members: %w", err)
		}
		for member, active := range d.Members {
			if _, err := tx.Exec(ctx,
				`INSERT INTO district_nodes (district_id, server_identity, active) VALUES ($1, $2, $3)`,
				id, member, active); err != nil {
				return fmt.Errorf("failed to insert district member: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) UpsertUser(ctx context.Context, login string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, login) VALUES ($1, $2)
		 ON CONFLICT (login) DO UPDATE SET login = EXCLUDED.login
		 RETURNING id`,
		uuid.New(), login).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return id, nil
}

func (r *Repository) InsertApplication(ctx context.Context, userID uuid.UUID, name, profile string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO applications (id, user_id, name, default_gear_size) VALUES ($1, $2, $3, $4)`,
		id, userID, name, profile)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert application: %w", err)
	}
	return id, nil
}

func (r *Repository) InsertGroup(ctx context.Context, appID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO group_instances (id, application_id) VALUES ($1, $2)`,
		id, appID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert group instance: %w", err)
	}
	return id, nil
}

// InsertGear writes a gear and its component descriptors in order.
func (r *Repository) InsertGear(ctx context.Context, groupID uuid.UUID, profile, serverIdentity string, components []string) (uuid.UUID, error) {
	id := uuid.New()
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO gears (id, group_instance_id, gear_size, server_identity) VALUES ($1, $2, $3, $4)`,
			id, groupID, profile, serverIdentity); err != nil {
			return fmt.Errorf("failed to insert gear: %w", err)
		}
		for pos, desc := range components {
			if _, err := tx.Exec(ctx,
				`INSERT INTO gear_components (gear_id, position, descriptor) VALUES ($1, $2, $3)`,
				id, pos, desc); err != nil {
				return fmt.Errorf("failed to insert gear component: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
