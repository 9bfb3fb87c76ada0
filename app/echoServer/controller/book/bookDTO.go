package book

type AddBookReq struct {
	Title     string `json:"title" validate:"required"`
	Author    string `json:"author"`
	ISBN      string `json:"isbn" validate:"required"`
	Publisher string `json:"publisher"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
}

type UpdateBookReq struct {
	Title     string `json:"title" validate:"required"`
	Author    string `json:"author" validate:"required"`
	ISBN      string `json:"isbn" validate:"required"`
	Publisher string `json:"publisher" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
}
