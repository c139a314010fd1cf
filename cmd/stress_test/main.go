package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/shop-api/internal/adapter/storage"
	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/core/service"
	"github.com/rl1809/shop-api/internal/port"
)

func main() {
	mongoURI := flag.String("mongo-uri", "mongodb://localhost:27017/?directConnection=true", "MongoDB URI, empty for the in-memory store")
	database := flag.String("database", "shop_stress", "MongoDB database")
	initialStock := flag.Int("stock", 20, "initial stock of the product")
	totalRequests := flag.Int("requests", 50, "concurrent reservations, one unit each")
	flag.Parse()

	ctx := context.Background()

	var products port.ProductRepository
	if *mongoURI == "" {
		products = storage.NewMemoryAdapter()
	} else {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
		if err != nil {
			log.Fatalf("failed to connect mongodb: %v", err)
		}
		defer client.Disconnect(ctx)
		if err := client.Ping(ctx, nil); err != nil {
			log.Fatalf("failed to ping mongodb: %v", err)
		}
		products = storage.NewMongoAdapter(client.Database(*database))
	}

	product, err := products.CreateProduct(ctx, domain.Product{
		ProductName:   "stress-" + uuid.NewString(),
		Category:      "stress",
		Price:         1,
		StockQuantity: *initialStock,
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}
	defer products.DeleteProduct(ctx, product.ID)

	ledger := service.NewStockLedger(products)

	// Counters
	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent reservations
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := ledger.ReserveStock(ctx, product.ID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("reservation error: %v", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := int(successCount.Load())
	soldOut := int(soldOutCount.Load())

	results := table.NewWriter()
	results.SetOutputMirror(os.Stdout)
	results.SetTitle("STRESS TEST RESULTS")
	results.AppendHeader(table.Row{"Metric", "Value"})
	results.AppendRows([]table.Row{
		{"Initial Stock", *initialStock},
		{"Total Requests", *totalRequests},
		{"Reserved", success},
		{"Sold Out", soldOut},
		{"Errors", errorCount.Load()},
		{"Duration", elapsed},
	})
	results.Render()

	expected := min(*initialStock, *totalRequests)
	if success == expected && soldOut == *totalRequests-expected {
		fmt.Printf("PASS: exactly %d reservations succeeded\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d reserved/%d sold out, got %d/%d\n",
			expected, *totalRequests-expected, success, soldOut)
	}

	// Verify final stock
	final, err := products.GetProduct(ctx, product.ID)
	if err != nil || final == nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", final.StockQuantity)

	if final.StockQuantity == *initialStock-expected {
		fmt.Println("PASS: stock never went negative")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", *initialStock-expected, final.StockQuantity)
	}
}
