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


package partition

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/docqa/core"
)

// partitionPDF extracts plain text page by page. Each page contributes
// one fragment; unreadable pages are skipped with a warning rather than
// failing the whole document.
func (p *Partitioner) partitionPDF(path string) ([]core.Chunk, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var fragments []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Warn("skipping unreadable pdf page", "path", path, "page", i, "err", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text != "" {
			fragments = append(fragments, text)
		}
	}

	return p.combine(fragments), nil
}
