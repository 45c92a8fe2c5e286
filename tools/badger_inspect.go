package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Quick terminal dump of the message cache, one row per cached entry.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// Default prefix skips the poll cursors
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Conversation", "Time", "Sender", "Type", "Body", "Price"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			if strings.HasPrefix(string(item.Key()), "cursor:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				var cached struct {
					Conversation string    `json:"conversation"`
					SenderID     string    `json:"sender_id"`
					Body         string    `json:"body"`
					Type         string    `json:"type"`
					Price        int64     `json:"price"`
					CreatedAt    time.Time `json:"created_at"`
				}
				if err := json.Unmarshal(v, &cached); err != nil {
					// Log and keep scanning instead of stopping the dump
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				price := "-"
				if cached.Price > 0 {
					price = fmt.Sprintf("%d", cached.Price)
				}
				table.Append([]string{
					shorten(string(item.Key()), 40),
					cached.Conversation,
					cached.CreatedAt.Local().Format("15:04:05"),
					cached.SenderID,
					strings.ToUpper(cached.Type),
					shorten(cached.Body, 60),
					price,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Error while scanning: ", err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.ERROR)
	return badger.Open(opts)
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
