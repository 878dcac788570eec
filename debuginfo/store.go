package debuginfo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chazu/flatprog/emit"
)

// ErrNotFound indicates the requested program or instruction is not stored.
var ErrNotFound = errors.New("not found")

// Location is one instruction of one method.
type Location struct {
	Method      string
	Instruction int
}

// Store keeps debug records in a SQLite database. Several programs can share
// one database; each is keyed by its ProgramID.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS programs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	fingerprint TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS methods (
	program_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	name       TEXT NOT NULL,
	PRIMARY KEY (program_id, name)
);
CREATE TABLE IF NOT EXISTS debug_handles (
	program_id   TEXT NOT NULL,
	method       TEXT NOT NULL,
	instruction  INTEGER NOT NULL,
	debug_handle INTEGER NOT NULL,
	PRIMARY KEY (program_id, method, instruction, debug_handle)
);
CREATE INDEX IF NOT EXISTS debug_handles_by_handle ON debug_handles (program_id, debug_handle);
CREATE TABLE IF NOT EXISTS delegates (
	program_id   TEXT NOT NULL,
	method       TEXT NOT NULL,
	instruction  INTEGER NOT NULL,
	name         TEXT NOT NULL,
	delegate_map JSON NOT NULL,
	PRIMARY KEY (program_id, method, instruction)
);
`

// Open opens or creates a debug database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores r, replacing any earlier record with the same ProgramID.
func (s *Store) Save(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id := r.ProgramID.String()
	for _, table := range []string{"methods", "debug_handles", "delegates"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE program_id = ?", id); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO programs (id, name, fingerprint) VALUES (?, ?, ?)",
		id, r.Name, r.Fingerprint,
	); err != nil {
		return fmt.Errorf("saving program: %w", err)
	}

	for pos, method := range r.Methods {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO methods (program_id, position, name) VALUES (?, ?, ?)",
			id, pos, method,
		); err != nil {
			return fmt.Errorf("saving method %s: %w", method, err)
		}

		for instr, handles := range r.DebugHandleMap[method] {
			for _, h := range handles {
				if _, err := tx.ExecContext(ctx,
					"INSERT OR IGNORE INTO debug_handles (program_id, method, instruction, debug_handle) VALUES (?, ?, ?, ?)",
					id, method, instr, h,
				); err != nil {
					return fmt.Errorf("saving debug handle: %w", err)
				}
			}
		}

		for instr, info := range r.DelegateDebugIDMap[method] {
			data, err := json.Marshal(info.DelegateMap)
			if err != nil {
				return fmt.Errorf("encoding delegate map: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO delegates (program_id, method, instruction, name, delegate_map) VALUES (?, ?, ?, ?, json(?))",
				id, method, instr, info.Name, string(data),
			); err != nil {
				return fmt.Errorf("saving delegate: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Load rebuilds the record stored under id.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*Record, error) {
	r := &Record{
		ProgramID:          id,
		DebugHandleMap:     make(map[string]emit.DebugHandleMap),
		DelegateDebugIDMap: make(map[string]emit.DelegateDebugIDMap),
	}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, fingerprint FROM programs WHERE id = ?", id.String(),
	).Scan(&r.Name, &r.Fingerprint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM methods WHERE program_id = ? ORDER BY position", id.String())
	if err != nil {
		return nil, fmt.Errorf("querying methods: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning method: %w", err)
		}
		r.Methods = append(r.Methods, name)
		r.DebugHandleMap[name] = emit.DebugHandleMap{}
		r.DelegateDebugIDMap[name] = emit.DelegateDebugIDMap{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, method := range r.Methods {
		instrs, err := s.instructions(ctx, id, method)
		if err != nil {
			return nil, err
		}
		for _, instr := range instrs {
			handles, err := s.Handles(ctx, id, method, instr)
			if err != nil {
				return nil, err
			}
			r.DebugHandleMap[method][instr] = handles
		}
		if err := s.loadDelegates(ctx, id, method, r.DelegateDebugIDMap[method]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (s *Store) instructions(ctx context.Context, id uuid.UUID, method string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT instruction FROM debug_handles WHERE program_id = ? AND method = ? ORDER BY instruction",
		id.String(), method)
	if err != nil {
		return nil, fmt.Errorf("querying instructions: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var instr int
		if err := rows.Scan(&instr); err != nil {
			return nil, fmt.Errorf("scanning instruction: %w", err)
		}
		out = append(out, instr)
	}
	return out, rows.Err()
}

func (s *Store) loadDelegates(ctx context.Context, id uuid.UUID, method string, into emit.DelegateDebugIDMap) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT instruction, name, delegate_map FROM delegates WHERE program_id = ? AND method = ?",
		id.String(), method)
	if err != nil {
		return fmt.Errorf("querying delegates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			instr int
			info  emit.DelegateDebugInfo
			data  string
		)
		if err := rows.Scan(&instr, &info.Name, &data); err != nil {
			return fmt.Errorf("scanning delegate: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &info.DelegateMap); err != nil {
			return fmt.Errorf("decoding delegate map: %w", err)
		}
		into[instr] = info
	}
	return rows.Err()
}

// Handles returns the sorted debug handles of one instruction, or
// ErrNotFound if it has none.
func (s *Store) Handles(ctx context.Context, id uuid.UUID, method string, instruction int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT debug_handle FROM debug_handles WHERE program_id = ? AND method = ? AND instruction = ? ORDER BY debug_handle",
		id.String(), method, instruction)
	if err != nil {
		return nil, fmt.Errorf("querying debug handles: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var h int
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning debug handle: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Locate returns every instruction lowered from the node with the given
// debug handle, ordered by method then instruction.
func (s *Store) Locate(ctx context.Context, id uuid.UUID, handle int) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT method, instruction FROM debug_handles WHERE program_id = ? AND debug_handle = ?",
		id.String(), handle)
	if err != nil {
		return nil, fmt.Errorf("querying locations: %w", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.Method, &loc.Instruction); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Method != out[j].Method {
			return out[i].Method < out[j].Method
		}
		return out[i].Instruction < out[j].Instruction
	})
	return out, nil
}
