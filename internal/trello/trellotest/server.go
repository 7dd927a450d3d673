// Package trellotest provides an in-process fake of the Trello API for tests.
package trellotest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dyluth/cardlink/internal/trello"
	"github.com/dyluth/cardlink/pkg/credentials"
	"github.com/labstack/echo/v4"
)

// Move records one accepted PUT /cards/:id call.
type Move struct {
	CardID   string
	ToListID string
	Position string
}

// Server serves the subset of the Trello API used by the trello package.
type Server struct {
	URL string

	mu          sync.Mutex
	creds       credentials.Pair
	boards      map[string]trello.Board
	moves       []Move
	requests    int
	moveStatus  int
	moveBody    string
	moveRelease chan struct{}
	held        int
}

// NewServer starts a fake accepting only creds. It is closed with the test.
func NewServer(t *testing.T, creds credentials.Pair) *Server {
	t.Helper()

	s := &Server{
		creds:  creds,
		boards: make(map[string]trello.Board),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(s.holdMoves, s.authenticate)
	e.GET("/1/members/me/boards", s.listBoards)
	e.GET("/1/boards/:id", s.getBoard)
	e.PUT("/1/cards/:id", s.moveCard)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	s.URL = srv.URL + "/1"
	return s
}

// AddBoard makes a board available.
func (s *Server) AddBoard(b trello.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[b.ID] = b.Clone()
}

// Board returns the server-side state of a board.
func (s *Server) Board(id string) (trello.Board, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	return b.Clone(), ok
}

// SetCredentials changes the pair the server accepts, e.g. to simulate a revoked token.
func (s *Server) SetCredentials(p credentials.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = p
}

// FailMoves makes every subsequent move answer with status and body.
// A zero status restores normal behaviour.
func (s *Server) FailMoves(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moveStatus = status
	s.moveBody = body
}

// HoldMoves blocks move requests until the returned function is called.
// Held requests are authenticated after release.
func (s *Server) HoldMoves() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.moveRelease = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.moveRelease = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Held returns the number of move requests currently waiting on HoldMoves.
func (s *Server) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// Moves returns the moves the server accepted.
func (s *Server) Moves() []Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Move(nil), s.moves...)
}

// Requests returns the number of requests received, authenticated or not.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) holdMoves(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Method != http.MethodPut {
			return next(c)
		}
		s.mu.Lock()
		hold := s.moveRelease
		s.mu.Unlock()
		if hold != nil {
			s.mu.Lock()
			s.held++
			s.mu.Unlock()

			var err error
			select {
			case <-hold:
			case <-c.Request().Context().Done():
				err = c.Request().Context().Err()
			}

			s.mu.Lock()
			s.held--
			s.mu.Unlock()
			if err != nil {
				return err
			}
		}
		return next(c)
	}
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		s.requests++
		want := s.creds
		s.mu.Unlock()

		if c.QueryParam("key") != want.Key || c.QueryParam("token") != want.Token {
			return c.String(http.StatusUnauthorized, "invalid key")
		}
		return next(c)
	}
}

func (s *Server) listBoards(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]trello.BoardSummary, 0, len(s.boards))
	for _, b := range s.boards {
		out = append(out, trello.BoardSummary{ID: b.ID, Name: b.Name})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getBoard(c echo.Context) error {
	s.mu.Lock()
	b, ok := s.boards[c.Param("id")]
	s.mu.Unlock()

	if !ok {
		return c.String(http.StatusNotFound, "The requested resource was not found.")
	}
	return c.JSON(http.StatusOK, b)
}

func (s *Server) moveCard(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.moveStatus != 0 {
		return c.String(s.moveStatus, s.moveBody)
	}

	cardID, listID := c.Param("id"), c.QueryParam("idList")
	for id, b := range s.boards {
		if _, ok := b.Card(cardID); !ok {
			continue
		}
		if !b.HasList(listID) {
			return c.String(http.StatusBadRequest, "invalid value for idList")
		}
		s.boards[id] = b.WithCardInList(cardID, listID)
		s.moves = append(s.moves, Move{CardID: cardID, ToListID: listID, Position: c.QueryParam("pos")})
		return c.JSON(http.StatusOK, map[string]string{"id": cardID, "idList": listID})
	}
	return c.String(http.StatusNotFound, "The requested resource was not found.")
}
