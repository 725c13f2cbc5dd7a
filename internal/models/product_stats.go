package models

// ProductStats is the admin dashboard summary of the catalog. Deleted
// products are not counted.
type ProductStats struct {
	TotalProducts  int64     `bson:"totalProducts" json:"totalProducts"`
	ActiveProducts int64     `bson:"activeProducts" json:"activeProducts"`
	TotalSales     int64     `bson:"totalSales" json:"totalSales"`
	TotalReviews   int64     `bson:"totalReviews" json:"totalReviews"`
	AverageRating  float64   `bson:"averageRating" json:"averageRating"`
	TopSelling     []Product `bson:"-" json:"topSelling"`
	TopRated       []Product `bson:"-" json:"topRated"`
}
