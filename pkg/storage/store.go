package storage

import (
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/types"
)

// Store persists the admin-authored configuration that must survive a
// tracker restart: the dynamic resource table and the admission lists.
// Node records are deliberately never stored; membership is rebuilt from
// agent re-registration.
type Store interface {
	// Dynamic resource table
	SaveDynamicResources(entries []types.DynamicResourceEntry) error
	LoadDynamicResources() ([]types.DynamicResourceEntry, error)

	// Admission lists
	SaveAdmission(cfg config.AdmissionConfig) error
	LoadAdmission() (*config.AdmissionConfig, error)

	// Utility
	Close() error
}
