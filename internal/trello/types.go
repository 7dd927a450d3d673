package trello

// BoardSummary is one entry of the board list.
type BoardSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List is a column of a board.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Card belongs to exactly one list. ListID is its only mutable field.
type Card struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	ListID string `json:"idList"`
}

// Board is a board with its open lists and cards.
type Board struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Lists []List `json:"lists"`
	Cards []Card `json:"cards"`
}

// Clone returns a deep copy so the original can be handed out as a snapshot.
func (b Board) Clone() Board {
	out := b
	out.Lists = append([]List(nil), b.Lists...)
	out.Cards = append([]Card(nil), b.Cards...)
	return out
}

// Card looks up a card by id.
func (b Board) Card(id string) (Card, bool) {
	for _, c := range b.Cards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// HasList reports whether the board contains the list.
func (b Board) HasList(id string) bool {
	for _, l := range b.Lists {
		if l.ID == id {
			return true
		}
	}
	return false
}

// WithCardInList returns a copy of the board with the card moved to listID.
// The receiver is left untouched.
func (b Board) WithCardInList(cardID, listID string) Board {
	out := b.Clone()
	for i := range out.Cards {
		if out.Cards[i].ID == cardID {
			out.Cards[i].ListID = listID
		}
	}
	return out
}

// CardsByList groups cards by list id, keeping board order within each list.
func (b Board) CardsByList() map[string][]Card {
	grouped := make(map[string][]Card, len(b.Lists))
	for _, c := range b.Cards {
		grouped[c.ListID] = append(grouped[c.ListID], c)
	}
	return grouped
}

// Destinations returns every list a card could move to: all lists except
// the one it is in. Unknown cards have no destinations.
func (b Board) Destinations(cardID string) []List {
	card, ok := b.Card(cardID)
	if !ok {
		return nil
	}
	var out []List
	for _, l := range b.Lists {
		if l.ID != card.ListID {
			out = append(out, l)
		}
	}
	return out
}
