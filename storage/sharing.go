package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// userIDPattern bounds the characters a userId may contain before it is
// ever stored in a diagram's owner or shares columns.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_@.-]{1,255}$`)

func validateUserID(userID string) error {
	if !userIDPattern.MatchString(userID) {
		return &InvalidUserIDError{UserID: userID}
	}
	return nil
}

// UpdateOwner reassigns a diagram's owner. An empty ownerID clears
// ownership back to anonymous.
func (s *SQLite) UpdateOwner(ctx context.Context, id, ownerID string) error {
	if ownerID != "" {
		if err := validateUserID(ownerID); err != nil {
			return err
		}
	}
	var arg interface{}
	if ownerID != "" {
		arg = ownerID
	}
	_, err := s.db.ExecContext(ctx, `UPDATE diagrams SET owner_id = ?, updated_at = ? WHERE id = ?`, arg, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	return nil
}

// SetPublic flips a diagram's public visibility flag.
func (s *SQLite) SetPublic(ctx context.Context, id string, isPublic bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE diagrams SET is_public = ?, updated_at = ? WHERE id = ?`, boolToInt(isPublic), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set public: %w", err)
	}
	return nil
}

// UpdateShares replaces a diagram's entire share list. Returns false if the
// diagram does not exist.
func (s *SQLite) UpdateShares(ctx context.Context, id string, shares []Share) (bool, error) {
	for _, share := range shares {
		if err := validateUserID(share.UserID); err != nil {
			return false, err
		}
	}
	if shares == nil {
		shares = []Share{}
	}
	raw, err := json.Marshal(shares)
	if err != nil {
		return false, fmt.Errorf("encode shares: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE diagrams SET shares = ?, updated_at = ? WHERE id = ?`, string(raw), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return false, fmt.Errorf("update shares: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// AddShare grants userID the given permission, replacing any existing
// entry for that user.
func (s *SQLite) AddShare(ctx context.Context, id, userID, permission string) (bool, error) {
	if err := validateUserID(userID); err != nil {
		return false, err
	}

	var found bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var sharesJSON string
		err := tx.QueryRowContext(ctx, `SELECT shares FROM diagrams WHERE id = ?`, id).Scan(&sharesJSON)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read shares: %w", err)
		}
		found = true

		var shares []Share
		if err := json.Unmarshal([]byte(sharesJSON), &shares); err != nil {
			return fmt.Errorf("decode shares: %w", err)
		}

		replaced := false
		for i, sh := range shares {
			if sh.UserID == userID {
				shares[i].Permission = permission
				replaced = true
				break
			}
		}
		if !replaced {
			shares = append(shares, Share{UserID: userID, Permission: permission})
		}

		raw, err := json.Marshal(shares)
		if err != nil {
			return fmt.Errorf("encode shares: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE diagrams SET shares = ?, updated_at = ? WHERE id = ?`, string(raw), time.Now().UTC().Format(time.RFC3339Nano), id)
		return err
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// RemoveShare revokes a user's share entry, if present.
func (s *SQLite) RemoveShare(ctx context.Context, id, userID string) (bool, error) {
	if err := validateUserID(userID); err != nil {
		return false, err
	}

	var found bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var sharesJSON string
		err := tx.QueryRowContext(ctx, `SELECT shares FROM diagrams WHERE id = ?`, id).Scan(&sharesJSON)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read shares: %w", err)
		}
		found = true

		var shares []Share
		if err := json.Unmarshal([]byte(sharesJSON), &shares); err != nil {
			return fmt.Errorf("decode shares: %w", err)
		}

		next := shares[:0]
		for _, sh := range shares {
			if sh.UserID != userID {
				next = append(next, sh)
			}
		}

		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode shares: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE diagrams SET shares = ?, updated_at = ? WHERE id = ?`, string(raw), time.Now().UTC().Format(time.RFC3339Nano), id)
		return err
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
