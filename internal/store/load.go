package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
)

// LoadSettlement is a settlement whose gondola system is named by number,
// since row ids are not known until the batch is inserted.
type LoadSettlement struct {
	Settlement   model.Settlement
	SystemNumber int
}

// LoadBatch is one detection pass.
type LoadBatch struct {
	Systems     []model.GondolaSystem
	Settlements []LoadSettlement
}

// LoadResult reports the row ids assigned by Load.
type LoadResult struct {
	SystemIDs     map[int]int64
	SettlementIDs []int64
}

// Load inserts a whole batch in one transaction, systems first. Gondola
// stations are inserted per system in sequence order. Any violation rolls
// back the entire batch.
func (s *Store) Load(ctx context.Context, b LoadBatch) (*LoadResult, error) {
	const op = "load"
	res := &LoadResult{SystemIDs: make(map[int]int64), SettlementIDs: make([]int64, len(b.Settlements))}
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		for i := range b.Systems {
			g := b.Systems[i]
			id, err := createGondolaSystem(ctx, tx, &g)
			if err != nil {
				return err
			}
			res.SystemIDs[g.Identifier.Number] = id
		}

		order := make([]int, len(b.Settlements))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			a, c := b.Settlements[order[i]], b.Settlements[order[j]]
			if a.SystemNumber != c.SystemNumber {
				return a.SystemNumber < c.SystemNumber
			}
			return sequenceOf(a.Settlement) < sequenceOf(c.Settlement)
		})

		for _, i := range order {
			ls := b.Settlements[i]
			st := ls.Settlement
			if ls.SystemNumber != 0 {
				if st.Gondola == nil {
					return model.Constraint(op, "settlements", "settlement %q names system %d without a role", st.SystemName, ls.SystemNumber)
				}
				id, ok := res.SystemIDs[ls.SystemNumber]
				if !ok {
					existing, err := getGondolaSystem(ctx, tx, "system_number = ?", ls.SystemNumber)
					if model.IsKind(err, model.KindNotFound) {
						return model.Referential(op, "settlements", "settlement %q references unknown system %d", st.SystemName, ls.SystemNumber)
					}
					if err != nil {
						return err
					}
					id = existing.ID
				}
				m := *st.Gondola
				m.SystemID = id
				st.Gondola = &m
			}
			id, err := createSettlement(ctx, tx, &st)
			if err != nil {
				return err
			}
			res.SettlementIDs[i] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("batch loaded", "systems", len(b.Systems), "settlements", len(b.Settlements))
	return res, nil
}

func sequenceOf(st model.Settlement) int {
	if st.Gondola == nil {
		return -1
	}
	return st.Gondola.Sequence
}
