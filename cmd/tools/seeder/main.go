package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/apotek-admin/internal/pricing"
)

var (
	brandNames = []string{"Kimia Farma", "Kalbe", "Sanbe", "Dexa Medica", "Tempo Scan", "Pharos", "Bernofarm", "Combiphar", "Novell", "Hexpharm", "Ifars", "Mersifarma"}
	categories = []string{"Analgesic", "Antibiotic", "Antihistamine", "Antacid", "Vitamin", "Supplement", "Cough Syrup", "Antiseptic", "Antifungal", "Antihypertensive", "Antidiabetic", "Eye Drops", "Skin Care", "Herbal", "Baby Care", "First Aid"}
	drugNames  = []string{"Paracetamol", "Amoxicillin", "Cetirizine", "Omeprazole", "Ibuprofen", "Loratadine", "Metformin", "Amlodipine", "Vitamin C", "Zinc", "Ambroxol", "Ketoconazole", "Povidone", "Simvastatin", "Ranitidine", "Dexamethasone"}
	forms      = []string{"Tablet", "Capsule", "Syrup", "Drops", "Cream", "Sachet"}
	customers  = []string{"Budi Santoso", "Siti Aminah", "Andi Pratama", "Dewi Lestari", "Eko Kurniawan", "Fajar Nugraha", "Gita Pertiwi", "Hendra Wijaya", "Indah Sari"}
)

func main() {
	var (
		nBrands     = flag.Int("brands", 10, "number of brands to create")
		nCategories = flag.Int("categories", 15, "number of categories to create")
		nProducts   = flag.Int("products", 50, "number of products to create")
		nStock      = flag.Int("stock-items", 100, "number of stock items to create")
		nSales      = flag.Int("sales", 30, "number of sales to create")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	log.Println("clearing existing data...")
	if _, err := db.Exec(`TRUNCATE sale_items, sales, stock_items, products, categories, brands RESTART IDENTITY CASCADE`); err != nil {
		log.Fatalf("truncate: %v", err)
	}

	brands := insertNamed(db, "brands", brandNames, *nBrands)
	cats := insertNamed(db, "categories", categories, *nCategories)
	products := seedProducts(db, brands, cats, *nProducts)
	seedStock(db, products, *nStock)

	created := 0
	for i := 0; i < *nSales; i++ {
		if err := seedSale(db); err != nil {
			log.Printf("warning: could not create sale: %v", err)
			continue
		}
		created++
	}

	log.Printf("seeded %d brands, %d categories, %d products, %d stock items, %d sales",
		len(brands), len(cats), len(products), *nStock, created)
}

func insertNamed(db *sql.DB, table string, pool []string, n int) []int64 {
	log.Printf("creating %s...", table)
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		name := pool[i%len(pool)]
		if i >= len(pool) {
			name += " " + strconv.Itoa(i/len(pool)+1)
		}
		var id int64
		err := db.QueryRow(
			fmt.Sprintf(`INSERT INTO %s (name, description) VALUES ($1, $2) RETURNING id`, table),
			name, "Seeded "+strings.TrimSuffix(table, "s"),
		).Scan(&id)
		if err != nil {
			log.Fatalf("insert %s: %v", table, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func seedProducts(db *sql.DB, brands, cats []int64, n int) []int64 {
	log.Println("creating products...")
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s %d mg %s", drugNames[rand.IntN(len(drugNames))], (rand.IntN(10)+1)*50, forms[rand.IntN(len(forms))])
		var id int64
		err := db.QueryRow(
			`INSERT INTO products (name, description, brand_id, category_id, sku) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			name, "Seeded product", brands[rand.IntN(len(brands))], cats[rand.IntN(len(cats))], fmt.Sprintf("SKU-%06d", i+1),
		).Scan(&id)
		if err != nil {
			log.Fatalf("insert product: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func seedStock(db *sql.DB, products []int64, n int) {
	log.Println("creating stock items...")
	today := time.Now().UTC()
	for i := 0; i < n; i++ {
		cost := decimal.NewFromFloat(5 + rand.Float64()*95).Round(2)
		selling := decimal.NewFromFloat(10 + rand.Float64()*140).Round(2)
		expires := today.AddDate(0, rand.IntN(24)+1, 0)
		_, err := db.Exec(
			`INSERT INTO stock_items (product_id, batch_number, quantity, cost_price, selling_price, expiration_date)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			products[rand.IntN(len(products))], fmt.Sprintf("BATCH-%05d", i+1), rand.IntN(991)+10,
			cost, selling, expires.Format("2006-01-02"),
		)
		if err != nil {
			log.Fatalf("insert stock item: %v", err)
		}
	}
}

type stockRow struct {
	id       int64
	quantity int
	price    decimal.Decimal
	expires  time.Time
}

// seedSale picks up to five random stock items and records a sale for them
// with the same pricing rules the API applies.
func seedSale(db *sql.DB) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.Query(`SELECT id, quantity, selling_price, expiration_date FROM stock_items
		WHERE quantity > 0 ORDER BY random() LIMIT $1 FOR UPDATE`, rand.IntN(5)+1)
	if err != nil {
		return err
	}
	var picked []stockRow
	for rows.Next() {
		var r stockRow
		if err := rows.Scan(&r.id, &r.quantity, &r.price, &r.expires); err != nil {
			rows.Close()
			return err
		}
		picked = append(picked, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(picked) == 0 {
		return fmt.Errorf("no stock available")
	}

	today := time.Now().UTC()
	items := make([]pricing.Item, 0, len(picked))
	for _, r := range picked {
		qty := min(rand.IntN(5)+1, r.quantity)
		items = append(items, pricing.Item{
			StockItemID:        strconv.FormatInt(r.id, 10),
			Qty:                qty,
			SellingPrice:       r.price,
			DiscountPercentage: decimal.NewFromInt(int64(pricing.DiscountPercentage(r.expires, today))),
		})
	}
	summary := pricing.Compute(items)

	name := customers[rand.IntN(len(customers))]
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"
	createdAt := today.Add(-time.Duration(rand.IntN(180*24)) * time.Hour)

	var saleID int64
	err = tx.QueryRow(
		`INSERT INTO sales (customer_name, customer_email, customer_phone, total_amount, discount_amount, final_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
		name, email, fmt.Sprintf("08%010d", rand.IntN(1e10)), summary.Gross, summary.Discount, summary.Final, createdAt,
	).Scan(&saleID)
	if err != nil {
		return err
	}
	for _, line := range summary.Lines {
		if _, err = tx.Exec(
			`INSERT INTO sale_items (sale_id, stock_item_id, quantity, unit_price, discount_percentage, total_price)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			saleID, line.StockItemID, line.Qty, line.UnitPrice, line.DiscountPercentage, line.LineTotal,
		); err != nil {
			return err
		}
		if _, err = tx.Exec(`UPDATE stock_items SET quantity = quantity - $1, updated_at = now() WHERE id = $2`, line.Qty, line.StockItemID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
