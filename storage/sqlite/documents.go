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


package sqlite

import (
	"context"
	"fmt"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

// AddDocument registers a document for a module.
func (l *Ledger) AddDocument(ctx context.Context, doc *core.Document) error {
	if doc.ID == "" {
		doc.ID = core.NewID()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO documents (id, module_id, title, file_path, active)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.ModuleID, doc.Title, doc.FilePath, boolToInt(doc.Active))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("adding document %s: %w", doc.ID, storage.ErrDuplicateKey)
		}
		return fmt.Errorf("adding document: %w", err)
	}
	return nil
}

// ListActiveDocuments returns a module's active documents ordered by
// ascending ID. The stable order makes two runs over an unchanged
// module process documents identically.
func (l *Ledger) ListActiveDocuments(ctx context.Context, moduleID string) ([]*core.Document, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, module_id, title, file_path, active
		FROM documents WHERE module_id = ? AND active = 1 ORDER BY id ASC`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("listing documents for module %s: %w", moduleID, err)
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		var (
			doc    core.Document
			active int
		)
		if err := rows.Scan(&doc.ID, &doc.ModuleID, &doc.Title, &doc.FilePath, &active); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.Active = active != 0
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// SetDocumentActive flips a document's active flag.
func (l *Ledger) SetDocumentActive(ctx context.Context, id string, active bool) error {
	res, err := l.db.ExecContext(ctx, `UPDATE documents SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("updating document %s: %w", id, err)
	}
	return requireRow(res, id)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
