package domain

// Location is a WGS 84 coordinate pair in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are inside their ranges.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Place is a stored place record. OwnerID is fixed at creation; only Title and
// Description change afterwards.
type Place struct {
	ID          string
	Title       string
	Description string
	Address     string
	Location    Location
	ImageRef    string
	OwnerID     string
}

// PlaceView is the external projection of a Place.
type PlaceView struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	Location    Location `json:"location"`
	Image       string   `json:"image"`
	Creator     string   `json:"creator"`
}

// View projects the place into its wire shape.
func (p *Place) View() PlaceView {
	return PlaceView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Address:     p.Address,
		Location:    p.Location,
		Image:       p.ImageRef,
		Creator:     p.OwnerID,
	}
}
