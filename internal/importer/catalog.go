package importer

import (
	"fmt"
	"sort"
	"sync"
)

// Target field names used by the executor.
const (
	FieldLabel         = "label"
	FieldLengthCM      = "length_cm"
	FieldWidthCM       = "width_cm"
	FieldHeightCM      = "height_cm"
	FieldVolumeM3      = "volume_m3"
	FieldWeightKG      = "weight_kg"
	FieldSite          = "site"
	FieldClientName    = "client_name"
	FieldClientEmail   = "client_email"
	FieldPalletNo      = "pallet_no"
	FieldSKU           = "sku"
	FieldDescription   = "description"
	FieldFragile       = "fragile"
	FieldThisSideUp    = "this_side_up"
	FieldStackable     = "stackable"
	FieldTopLoadKG     = "top_load_kg"
	FieldPriority      = "priority"
	FieldLocation      = "location"
	FieldZone          = "zone"
	FieldRack          = "rack"
	FieldShelf         = "shelf"
	FieldQuantity      = "quantity"
	FieldStatus        = "status"
	FieldInventoryDate = "inventory_date"
	FieldLatitude      = "latitude"
	FieldLongitude     = "longitude"
	FieldNotes         = "notes"
	FieldPhotoPallet   = "photo_pallet"
	FieldPhotoLabel    = "photo_label"
	FieldPhotoRacking  = "photo_racking"
	FieldPhotoOnsite   = "photo_onsite"
)

// photoFields lists the recognised photo columns in attachment order.
var photoFields = []struct {
	field string
	kind  MediaKind
}{
	{FieldPhotoPallet, MediaPallet},
	{FieldPhotoLabel, MediaLabel},
	{FieldPhotoRacking, MediaRacking},
	{FieldPhotoOnsite, MediaOnsite},
}

// Profile is a named field catalog offered to the column mapper.
type Profile struct {
	Key      string            `json:"key"`
	Label    string            `json:"label"`
	Required []FieldDefinition `json:"required"`
	Optional []FieldDefinition `json:"optional"`
}

// Fields returns required then optional definitions.
func (p Profile) Fields() []FieldDefinition {
	out := make([]FieldDefinition, 0, len(p.Required)+len(p.Optional))
	out = append(out, p.Required...)
	return append(out, p.Optional...)
}

// Lookup finds a field definition by name.
func (p Profile) Lookup(field string) (FieldDefinition, bool) {
	for _, f := range p.Fields() {
		if f.Field == field {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// InventoryProfile is the catalog for warehouse inventory sheets.
var InventoryProfile = Profile{
	Key:   "inventory",
	Label: "Inventory units",
	Required: []FieldDefinition{
		{Field: FieldLabel, Label: "Label", Type: FieldText},
		{Field: FieldLengthCM, Label: "Length (cm)", Type: FieldNumber},
		{Field: FieldWidthCM, Label: "Width (cm)", Type: FieldNumber},
		{Field: FieldHeightCM, Label: "Height (cm)", Type: FieldNumber},
		{Field: FieldVolumeM3, Label: "Volume (m3)", Type: FieldNumber},
		{Field: FieldWeightKG, Label: "Weight (kg)", Type: FieldNumber},
		{Field: FieldSite, Label: "Site", Type: FieldText},
		{Field: FieldClientName, Label: "Client Name", Type: FieldText},
		{Field: FieldClientEmail, Label: "Client Email", Type: FieldEmail},
	},
	Optional: []FieldDefinition{
		{Field: FieldPalletNo, Label: "Pallet No", Type: FieldText},
		{Field: FieldSKU, Label: "SKU", Type: FieldText},
		{Field: FieldDescription, Label: "Description", Type: FieldText},
		{Field: FieldFragile, Label: "Fragile", Type: FieldBool},
		{Field: FieldThisSideUp, Label: "This Side Up", Type: FieldBool},
		{Field: FieldStackable, Label: "Stackable", Type: FieldBool},
		{Field: FieldTopLoadKG, Label: "Top Load (kg)", Type: FieldNumber},
		{Field: FieldPriority, Label: "Priority", Type: FieldText},
		{Field: FieldLocation, Label: "Location", Type: FieldText},
		{Field: FieldZone, Label: "Zone", Type: FieldText},
		{Field: FieldRack, Label: "Rack", Type: FieldText},
		{Field: FieldShelf, Label: "Shelf", Type: FieldText},
		{Field: FieldQuantity, Label: "Quantity", Type: FieldInteger},
		{Field: FieldStatus, Label: "Status", Type: FieldText},
		{Field: FieldInventoryDate, Label: "Inventory Date", Type: FieldDate},
		{Field: FieldLatitude, Label: "Latitude", Type: FieldNumber},
		{Field: FieldLongitude, Label: "Longitude", Type: FieldNumber},
		{Field: FieldNotes, Label: "Notes", Type: FieldText},
		{Field: FieldPhotoPallet, Label: "Pallet Photo", Type: FieldURL},
		{Field: FieldPhotoLabel, Label: "Label Photo", Type: FieldURL},
		{Field: FieldPhotoRacking, Label: "Racking Photo", Type: FieldURL},
		{Field: FieldPhotoOnsite, Label: "Onsite Photo", Type: FieldURL},
	},
}

var (
	profiles   = make(map[string]Profile)
	profilesMu sync.RWMutex
)

func init() {
	RegisterProfile(InventoryProfile)
}

// RegisterProfile adds a catalog. Panics if the key is already taken.
func RegisterProfile(p Profile) {
	profilesMu.Lock()
	defer profilesMu.Unlock()

	if _, exists := profiles[p.Key]; exists {
		panic(fmt.Sprintf("import profile already registered: %s", p.Key))
	}
	profiles[p.Key] = p
}

// GetProfile returns a catalog by key.
func GetProfile(key string) (Profile, bool) {
	profilesMu.RLock()
	defer profilesMu.RUnlock()

	p, ok := profiles[key]
	return p, ok
}

// Profiles returns all registered catalogs sorted by key.
func Profiles() []Profile {
	profilesMu.RLock()
	defer profilesMu.RUnlock()

	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
