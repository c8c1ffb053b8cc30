package storage

import (
	"gorm.io/gorm/clause"
)

// onConflictUpdateCheckpoint upserts the single checkpoint row
// (id = 1), used instead of a separate "has a checkpoint been written
// yet" branch at every call site.
func onConflictUpdateCheckpoint() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}
}

// onConflictUpdateTreeCache keeps only the latest tree cache row per
// block number, upserting rather than accumulating history.
func onConflictUpdateTreeCache() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "block_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"accounts", "updated_at"}),
	}
}

// onConflictUpdateEthParameters upserts the single eth_parameters row
// (id = 1), used whenever the driver syncs its configured contract
// addresses and upgrade schedule into storage.
func onConflictUpdateEthParameters() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rollup_address", "governance_address", "initial_version", "upgrade_blocks_json", "updated_at"}),
	}
}

// onConflictIgnoreToken leaves an existing token row untouched: tokens
// are registered once and never change, so a later NewToken replay (or
// the genesis SPECIAL token already present) is a no-op rather than an
// error.
func onConflictIgnoreToken() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		DoNothing: true,
	}
}

// onConflictIgnorePriorityOp mirrors onConflictIgnoreToken for priority
// op requests: replaying the same NewPriorityRequest log twice (e.g.
// after a restart) has no consequences, matching the original
// events_state's "applying the same log twice" comment.
func onConflictIgnorePriorityOp() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "serial_id"}},
		DoNothing: true,
	}
}
