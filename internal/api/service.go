package api

import (
	"net/http"

	"github.com/forge-games/contribot/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Service exposes a read-only view of the gamification state.
type Service struct {
	storage *storage.Storage
}

func NewService(storage *storage.Storage) *Service {
	return &Service{storage: storage}
}

type leaderboardRow struct {
	Rank       int      `json:"rank"`
	GithubUser string   `json:"github_user"`
	Points     int      `json:"points"`
	Badges     []string `json:"badges"`
}

func (s *Service) HandleLeaderboard() echo.HandlerFunc {
	return func(c echo.Context) error {
		users, err := s.storage.TopUsers(c.Request().Context(), 10)
		if err != nil {
			logrus.Errorf("failed to get top users: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get leaderboard"})
		}

		rows := make([]leaderboardRow, 0, len(users))
		for i, user := range users {
			badges := user.Badges
			if badges == nil {
				badges = []string{}
			}
			rows = append(rows, leaderboardRow{
				Rank:       i + 1,
				GithubUser: user.GithubUser,
				Points:     user.Points,
				Badges:     badges,
			})
		}
		return c.JSON(http.StatusOK, rows)
	}
}

func (s *Service) HandleHealth() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}
