package meli

import "encoding/json"

// Item is the subset of the marketplace item resource the audit needs.
type Item struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	AvailableQuantity int     `json:"available_quantity"`
	SellerCustomField string  `json:"seller_custom_field"`
	Price             float64 `json:"price,omitempty"`
	Status            string  `json:"status,omitempty"`
}

// multigetResult is one element of the /items?ids= response envelope.
type multigetResult struct {
	Code int             `json:"code"`
	Body json.RawMessage `json:"body"`
}

// ScrollPage is one page of a search_type=scan catalog scan.
type ScrollPage struct {
	Results  []string `json:"results"`
	ScrollID string   `json:"scroll_id"`
	Paging   Paging   `json:"paging"`
}

// Paging carries offset-style pagination metadata.
type Paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	Item struct {
		ID string `json:"id"`
	} `json:"item"`
	Quantity int `json:"quantity"`
}

// Order is the subset of the order resource used for classification.
type Order struct {
	ID         int64       `json:"id"`
	Status     string      `json:"status"`
	OrderItems []OrderItem `json:"order_items"`
}

// OrderSearch is the /orders/search response.
type OrderSearch struct {
	Results []Order `json:"results"`
	Paging  Paging  `json:"paging"`
}

// FeedMessage is one undelivered notification reported by the
// /missed_feeds endpoint.
type FeedMessage struct {
	Topic    string `json:"topic"`
	Resource string `json:"resource"`
}

// FeedPage is one page of the /missed_feeds response.
type FeedPage struct {
	Messages []FeedMessage `json:"messages"`
	Paging   Paging        `json:"paging"`
}

// User is the subset of /users/me needed to resolve the seller id.
type User struct {
	ID int64 `json:"id"`
}

// TokenResponse is the /oauth/token grant response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
}
