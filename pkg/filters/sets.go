package filters

import "gorm.io/gorm"

var Authors = FilterSet{
	{Param: "name", Column: "authors.name", Lookup: IContains},
}

var Categories = FilterSet{
	{Param: "name", Column: "categories.name", Lookup: IContains},
}

var Books = FilterSet{
	{Param: "title", Column: "books.title", Lookup: IContains},
	{Param: "isbn", Column: "books.isbn", Lookup: Exact},
	{Param: "category_id", Column: "books.category_id", Lookup: Uint},
	{Param: "author_id", Lookup: UUID, Build: bookByAuthor},
}

var Users = FilterSet{
	{Param: "email", Column: "users.email", Lookup: IContains},
}

var BorrowRecords = FilterSet{
	{Param: "status", Column: "borrow_records.status", Lookup: Exact},
	{Param: "user_id", Column: "borrow_records.user_id", Lookup: UUID},
	{Param: "book_id", Column: "borrow_records.book_id", Lookup: UUID},
	{Param: "due_date", Column: "borrow_records.due_date", Lookup: DateRange},
}

func bookByAuthor(authorID interface{}) Scope {
	return func(db *gorm.DB) *gorm.DB {
		sub := db.Session(&gorm.Session{NewDB: true}).
			Table("book_authors").
			Select("book_id").
			Where("author_id = ?", authorID)
		return db.Where("books.id IN (?)", sub)
	}
}
