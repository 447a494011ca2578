// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/docqa/chat"
	"github.com/poiesic/docqa/core"
)

// anonymousUser stands in when the caller supplies no identity.
const anonymousUser = "anonymous"

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	UserID    string `json:"user_id"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		moduleID := chi.URLParam(r, "moduleID")

		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserID == "" {
			req.UserID = anonymousUser
		}

		resp, err := deps.Chat.Ask(r.Context(), chat.AskRequest{
			ModuleID:   moduleID,
			UserID:     req.UserID,
			Question:   req.Question,
			SessionKey: req.SessionID,
			Title:      req.Title,
		})
		if err != nil {
			var notReady *core.NotReadyError
			switch {
			case errors.Is(err, core.ErrEmptyQuestion):
				httpError(w, http.StatusBadRequest, "question is required")
			case errors.As(err, &notReady):
				httpError(w, http.StatusConflict, "module is not ready for questions")
			default:
				deps.Logger.Error("answering question", "module_id", moduleID, "err", err)
				httpError(w, http.StatusInternalServerError, "could not answer question")
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"question":        resp.Question,
			"answer":          resp.Answer,
			"answer_id":       resp.AnswerID,
			"session_id":      resp.SessionKey,
			"processing_time": resp.ProcessingTime,
			"fallback":        resp.Fallback,
		})
	}
}

type ratingRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
	UserID   string `json:"user_id"`
}

func handleRateAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		answerID := chi.URLParam(r, "answerID")

		var req ratingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserID == "" {
			req.UserID = anonymousUser
		}

		rating, err := deps.Chat.Rate(r.Context(), chat.RateRequest{
			AnswerID: answerID,
			UserID:   req.UserID,
			Score:    req.Rating,
			Feedback: req.Feedback,
		})
		if err != nil {
			switch {
			case errors.Is(err, core.ErrInvalidRating):
				httpError(w, http.StatusBadRequest, "rating must be between 1 and 5")
			case errors.Is(err, chat.ErrAnswerNotFound):
				httpError(w, http.StatusNotFound, "answer not found")
			case errors.Is(err, chat.ErrAlreadyRated):
				httpError(w, http.StatusConflict, "answer already rated")
			default:
				deps.Logger.Error("recording rating", "answer_id", answerID, "err", err)
				httpError(w, http.StatusInternalServerError, "could not record rating")
			}
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"rating_id": rating.ID,
		})
	}
}
