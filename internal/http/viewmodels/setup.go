package viewmodels

// WizardStep is the position of the configuration wizard.
type WizardStep int

const (
	StepInitial         WizardStep = 1
	StepUserPreferences WizardStep = 2
	StepCompleted       WizardStep = 3
)

func (s WizardStep) Valid() bool {
	return s >= StepInitial && s <= StepCompleted
}

type TenantOption struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

type SeverityOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	Selected bool   `json:"selected"`
}

type SourceTypeOption struct {
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

type SourceTypeCategoryOption struct {
	Value string             `json:"value"`
	Types []SourceTypeOption `json:"types"`
	// Selected is set when every type of the category is selected.
	Selected bool `json:"selected"`
}

type IndexOption struct {
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// SetupOptions are the choices offered by the preferences step.
type SetupOptions struct {
	Tenants              []TenantOption             `json:"tenants"`
	Indexes              []IndexOption              `json:"indexes"`
	Severities           []SeverityOption           `json:"severities"`
	SourceTypeCategories []SourceTypeCategoryOption `json:"source_type_categories"`
}

// SetupPreferences mirrors the persisted preferences.
type SetupPreferences struct {
	TenantIDs           []int  `json:"tenant_ids"`
	IndexName           string `json:"index_name"`
	IngestFullEventData bool   `json:"ingest_full_event_data"`
}

// SetupState is the wizard state returned by every setup endpoint.
type SetupState struct {
	Step         WizardStep       `json:"step"`
	IsConfigured bool             `json:"is_configured"`
	HasAPIKey    bool             `json:"has_api_key"`
	Preferences  SetupPreferences `json:"preferences"`
	Options      *SetupOptions    `json:"options,omitempty"`
	SearchURL    string           `json:"search_url,omitempty"`
	RedirectURL  string           `json:"redirect_url"`
	Toast        *ToastViewData   `json:"toast,omitempty"`
}

// APIKeyRequest is the body of the API key step.
type APIKeyRequest struct {
	// APIKey may be empty to keep the stored key.
	APIKey string `json:"api_key"`
}

// PreferencesRequest is the body of the preferences step.
type PreferencesRequest struct {
	TenantIDs           []int    `json:"tenant_ids"`
	IndexName           string   `json:"index_name"`
	IngestFullEventData bool     `json:"ingest_full_event_data"`
	Severities          []string `json:"severities"`
	SourceTypes         []string `json:"source_types"`
}
